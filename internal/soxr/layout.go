package soxr

import "strings"

// Field describes one struct member as the library declares it.
type Field struct {
	Name  string
	CType string
}

// Layout is a static descriptor of a struct that crosses the sandbox boundary.
// Field names match the CBOR keys of the Go type.
type Layout struct {
	Name   string
	Fields []Field
}

// Lookup returns the declared field for name. An element index such as
// "resamplers[2]" resolves to its array field.
func (l Layout) Lookup(name string) (Field, bool) {
	if i := strings.IndexByte(name, '['); i >= 0 {
		name = name[:i]
	}
	for _, f := range l.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Has reports whether the layout declares a field.
func (l Layout) Has(name string) bool {
	_, ok := l.Lookup(name)
	return ok
}

var (
	QualitySpecLayout = Layout{Name: "soxr_quality_spec", Fields: []Field{
		{"precision", "double"},
		{"phase_response", "double"},
		{"passband_end", "double"},
		{"stopband_begin", "double"},
		{"e", "void *"},
		{"flags", "unsigned long"},
	}}

	IOSpecLayout = Layout{Name: "soxr_io_spec", Fields: []Field{
		{"itype", "soxr_datatype_t"},
		{"otype", "soxr_datatype_t"},
		{"scale", "double"},
		{"e", "void *"},
		{"flags", "unsigned long"},
	}}

	RuntimeSpecLayout = Layout{Name: "soxr_runtime_spec", Fields: []Field{
		{"log2_min_dft_size", "unsigned"},
		{"log2_large_dft_size", "unsigned"},
		{"coef_size_kbytes", "unsigned"},
		{"num_threads", "unsigned"},
		{"e", "void *"},
		{"flags", "unsigned long"},
	}}

	// ConverterLayout omits deinterleave/interleave: they are function
	// pointers with no host-visible representation.
	ConverterLayout = Layout{Name: "soxr", Fields: []Field{
		{"num_channels", "unsigned"},
		{"io_ratio", "double"},
		{"error", "soxr_error_t"},
		{"q_spec", "soxr_quality_spec_t"},
		{"io_spec", "soxr_io_spec_t"},
		{"runtime_spec", "soxr_runtime_spec_t"},
		{"input_fn_state", "void *"},
		{"input_fn", "soxr_input_fn_t"},
		{"max_ilen", "size_t"},
		{"shared", "resampler_shared_t"},
		{"resamplers", "resampler_t *"},
		{"control_block", "control_block_t"},
		{"channel_ptrs", "void * *"},
		{"clips", "size_t"},
		{"e", "void *"},
		{"seed", "unsigned long"},
		{"flushing", "int"},
	}}

	// ProgressLayout describes the idone/odone out-parameters of soxr_process
	// together with the lengths they are bounded by.
	ProgressLayout = Layout{Name: "soxr_process.progress", Fields: []Field{
		{"idone", "size_t"},
		{"ilen", "size_t"},
		{"odone", "size_t"},
		{"olen", "size_t"},
		{"out", "void *"},
	}}

	// StatusLayout describes the soxr_error_t status every call returns.
	StatusLayout = Layout{Name: "soxr_error_t", Fields: []Field{
		{"error", "const char *"},
	}}
)
