package soxr

import (
	"reflect"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func cborKeys(v any) []string {
	typ := reflect.TypeOf(v)
	keys := make([]string, 0, typ.NumField())
	for i := range typ.NumField() {
		tag := typ.Field(i).Tag.Get("cbor")
		keys = append(keys, strings.Split(tag, ",")[0])
	}
	return keys
}

func layoutNames(l Layout) []string {
	names := make([]string, len(l.Fields))
	for i, f := range l.Fields {
		names[i] = f.Name
	}
	return names
}

// Layouts must describe exactly the keys that cross the boundary, in order.
func TestLayoutsMatchWireTypes(t *testing.T) {
	tests := []struct {
		layout Layout
		value  any
	}{
		{QualitySpecLayout, QualitySpec{}},
		{IOSpecLayout, IOSpec{}},
		{RuntimeSpecLayout, RuntimeSpec{}},
		{ConverterLayout, Converter{}},
	}

	for _, tt := range tests {
		t.Run(tt.layout.Name, func(t *testing.T) {
			assert.Equal(t, layoutNames(tt.layout), cborKeys(tt.value))
		})
	}
}

func TestLayout_Has(t *testing.T) {
	assert.True(t, ConverterLayout.Has("flushing"))
	assert.True(t, ProgressLayout.Has("odone"))
	assert.False(t, QualitySpecLayout.Has("stopband_end"))
}

func TestLayout_Lookup(t *testing.T) {
	f, ok := ConverterLayout.Lookup("resamplers[3]")
	assert.True(t, ok)
	assert.Equal(t, Field{"resamplers", "resampler_t *"}, f)

	f, ok = ProgressLayout.Lookup("out[0]")
	assert.True(t, ok)
	assert.Equal(t, "void *", f.CType)

	f, ok = StatusLayout.Lookup("error")
	assert.True(t, ok)
	assert.Equal(t, "const char *", f.CType)

	_, ok = IOSpecLayout.Lookup("[0]")
	assert.False(t, ok)
}
