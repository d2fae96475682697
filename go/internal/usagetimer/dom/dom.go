//go:build js && wasm

// Package dom binds the usage timer to a browser element when compiled
// with GOOS=js GOARCH=wasm.
package dom

import (
	"fmt"
	"syscall/js"

	"github.com/mcdev12/screentime/go/internal/usagetimer"
)

// Element is a DOM node that satisfies usagetimer.Display.
type Element struct {
	value js.Value
}

// Lookup resolves an element by id, failing fast when it is absent.
func Lookup(id string) (*Element, error) {
	doc := js.Global().Get("document")
	if doc.IsUndefined() || doc.IsNull() {
		return nil, fmt.Errorf("no document available: %w", usagetimer.ErrDisplayNotFound)
	}

	el := doc.Call("getElementById", id)
	if el.IsNull() || el.IsUndefined() {
		return nil, fmt.Errorf("element #%s: %w", id, usagetimer.ErrDisplayNotFound)
	}
	return &Element{value: el}, nil
}

// Attached reports whether e still refers to a live node.
func (e *Element) Attached() bool {
	return e != nil && e.value.Truthy() && e.value.Get("isConnected").Truthy()
}

func (e *Element) SetText(text string) error {
	e.value.Set("innerText", text)
	return nil
}

func (e *Element) AddClass(class string) error {
	e.value.Get("classList").Call("add", class)
	return nil
}

// OnReady calls fn once the document has finished parsing.
func OnReady(fn func()) {
	doc := js.Global().Get("document")
	if doc.Get("readyState").String() != "loading" {
		fn()
		return
	}

	var cb js.Func
	cb = js.FuncOf(func(this js.Value, args []js.Value) any {
		cb.Release()
		fn()
		return nil
	})
	doc.Call("addEventListener", "DOMContentLoaded", cb)
}
