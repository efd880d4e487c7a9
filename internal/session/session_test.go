package session

import (
	"bytes"
	"errors"
	"log/slog"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/go-resample-sandbox/internal/codec"
	"github.com/tphakala/go-resample-sandbox/internal/sandbox"
	"github.com/tphakala/go-resample-sandbox/internal/soxr"
	"github.com/tphakala/go-resample-sandbox/internal/taint"
	"github.com/tphakala/go-resample-sandbox/internal/testutil"
)

func newConverter(t *testing.T, s *Session, ratio float64) *Handle {
	t.Helper()
	q, err := s.BuildQualitySpec(soxr.MQ, 0)
	require.NoError(t, err)
	h, err := s.CreateHandle(1, ratio, q)
	require.NoError(t, err)
	return h
}

func TestBuildQualitySpec(t *testing.T) {
	rec := testutil.NewRecorder()
	s := New(rec, nil)

	q, err := s.BuildQualitySpec(soxr.HQ, soxr.VR)
	require.NoError(t, err)
	assert.Equal(t, 20.0, q.Precision)
	assert.Equal(t, soxr.VR, q.Flags)
	assert.Equal(t, []string{soxr.CallQualitySpec}, rec.Names())
	assert.Equal(t, 1, rec.Created())
	assert.Equal(t, 1, rec.Destroyed())
}

// Every operation brackets its call with exactly one instance.
func TestSession_OneInstancePerCall(t *testing.T) {
	rec := testutil.NewRecorder()
	s := New(rec, nil)

	h := newConverter(t, s, 0.5)
	out := make([]float32, 256)
	_, _, err := s.Process(h, testutil.Sine(256, 440, 44100), out, false)
	require.NoError(t, err)
	_, _, err = s.Process(h, nil, out, true)
	require.NoError(t, err)

	assert.Equal(t, 4, rec.Created())
	assert.Equal(t, 4, rec.Destroyed())
	assert.Equal(t, []string{soxr.CallQualitySpec, soxr.CallCreate, soxr.CallProcess, soxr.CallProcess}, rec.Names())
}

func TestCreateHandle(t *testing.T) {
	s := New(testutil.NewRecorder(), nil)
	h := newConverter(t, s, 0.5)

	c := h.Converter()
	assert.Equal(t, uint32(1), c.NumChannels)
	assert.Equal(t, 0.5, c.IORatio)
	assert.NotEmpty(t, h.State())
}

func TestCreateHandle_NativeFailure(t *testing.T) {
	rec := testutil.NewRecorder()
	s := New(rec, nil)

	q, err := s.BuildQualitySpec(soxr.MQ, 0)
	require.NoError(t, err)
	h, err := s.CreateHandle(0, 0.5, q)
	require.Error(t, err)
	assert.Nil(t, h)
	assert.ErrorIs(t, err, ErrCreateFailed)
	assert.ErrorIs(t, err, ErrNative)

	var nerr *NativeError
	require.True(t, errors.As(err, &nerr))
	assert.Equal(t, soxr.CallCreate, nerr.Call)
	assert.Equal(t, "invalid number of channels", nerr.Message)
	assert.Equal(t, rec.Created(), rec.Destroyed())
}

func TestCreateHandle_NullWithoutStatus(t *testing.T) {
	rec := testutil.NewRecorder()
	rec.Tamper = testutil.TamperField(soxr.CallCreate, "handle", nil)
	s := New(rec, nil)

	q, err := s.BuildQualitySpec(soxr.MQ, 0)
	require.NoError(t, err)
	_, err = s.CreateHandle(1, 0.5, q)
	require.ErrorIs(t, err, ErrCreateFailed)
	assert.NotErrorIs(t, err, ErrNative)
}

// Factors above 1 cannot pass the io_ratio check.
func TestCreateHandle_RatioAboveOne(t *testing.T) {
	s := New(testutil.NewRecorder(), nil)

	q, err := s.BuildQualitySpec(soxr.MQ, 0)
	require.NoError(t, err)
	_, err = s.CreateHandle(1, 2.0, q)
	testutil.RequireViolation(t, err, "soxr", "io_ratio")
}

func TestProcess_DrainLength(t *testing.T) {
	rec := testutil.NewRecorder()
	s := New(rec, nil)
	h := newConverter(t, s, 0.5)

	in := testutil.Sine(100, 440, 44100)
	out := make([]float32, 256)
	_, _, err := s.Process(h, in, out, false)
	require.NoError(t, err)
	_, _, err = s.Process(h, in, out, true)
	require.NoError(t, err)

	args, err := rec.ProcessArgs()
	require.NoError(t, err)
	require.Len(t, args, 2)
	assert.Equal(t, uint64(100), args[0].ILen)
	assert.Equal(t, ^uint64(100), args[1].ILen)
	assert.Equal(t, DrainLength(100), args[1].ILen)
	assert.Equal(t, uint64(256), args[1].OLen)
}

func TestProcess_HalfRate(t *testing.T) {
	s := New(testutil.NewRecorder(), nil)
	h := newConverter(t, s, 0.5)

	out := make([]float32, 256)
	idone, odone, err := s.Process(h, testutil.Sine(256, 440, 44100), out, false)
	require.NoError(t, err)
	assert.LessOrEqual(t, idone, 256)
	assert.LessOrEqual(t, odone, 256)
	testutil.AssertNoNaNOrInf(t, out[:odone])

	total := odone
	for {
		_, odone, err = s.Process(h, nil, out, true)
		require.NoError(t, err)
		if odone == 0 {
			break
		}
		total += odone
	}
	assert.Equal(t, 128, total)
	assert.Equal(t, int32(1), h.Converter().Flushing)
}

func TestProcess_ChannelMismatch(t *testing.T) {
	s := New(testutil.NewRecorder(), nil)
	q, err := s.BuildQualitySpec(soxr.MQ, 0)
	require.NoError(t, err)
	h, err := s.CreateHandle(2, 0.5, q)
	require.NoError(t, err)

	_, _, err = s.Process(h, make([]float32, 3), make([]float32, 4), false)
	assert.ErrorIs(t, err, ErrChannelMismatch)
}

func TestSetRatio_FixedRate(t *testing.T) {
	s := New(testutil.NewRecorder(), nil)
	h := newConverter(t, s, 0.5)
	before := h.State()

	err := s.SetRatio(h, 0.25)
	require.ErrorIs(t, err, ErrNative)
	assert.Equal(t, before, h.State())
	assert.Equal(t, 0.5, h.Converter().IORatio)
}

func TestSetRatio_VariableRate(t *testing.T) {
	s := New(testutil.NewRecorder(), nil)
	q, err := s.BuildQualitySpec(soxr.HQ, soxr.VR)
	require.NoError(t, err)
	h, err := s.CreateHandle(1, 0.5, q)
	require.NoError(t, err)

	require.NoError(t, s.SetRatio(h, 0.75))
	assert.Equal(t, 0.75, h.Converter().IORatio)
}

// A compromised library returning out-of-domain values is caught and the
// caller's state does not advance.
func TestProcess_TamperedResults(t *testing.T) {
	tests := []struct {
		name   string
		tamper testutil.Tamper
		typ    string
		field  string
	}{
		{
			name: "handle_precision",
			tamper: testutil.TamperHandle(soxr.CallProcess, func(c *soxr.Converter) {
				c.QSpec.Precision = 65
			}),
			typ: "soxr", field: "q_spec.precision",
		},
		{
			name: "handle_runtime_flags",
			tamper: testutil.TamperHandle(soxr.CallProcess, func(c *soxr.Converter) {
				c.RuntimeSpec.Flags = 1
			}),
			typ: "soxr", field: "runtime_spec.flags",
		},
		{
			name: "handle_missing_shared",
			tamper: testutil.TamperHandle(soxr.CallProcess, func(c *soxr.Converter) {
				c.Shared = nil
			}),
			typ: "soxr", field: "shared",
		},
		{
			name: "handle_channel_count",
			tamper: testutil.TamperHandle(soxr.CallProcess, func(c *soxr.Converter) {
				c.NumChannels = 2
				c.Resamplers = append(c.Resamplers, c.Resamplers[0])
				c.ChannelPtrs = append(c.ChannelPtrs, c.ChannelPtrs[0])
			}),
			typ: "soxr", field: "num_channels",
		},
		{
			name:   "idone_past_ilen",
			tamper: testutil.TamperField(soxr.CallProcess, "idone", uint64(257)),
			typ:    "soxr_process.progress", field: "idone",
		},
		{
			name:   "odone_past_olen",
			tamper: testutil.TamperField(soxr.CallProcess, "odone", uint64(1000)),
			typ:    "soxr_process.progress", field: "odone",
		},
		{
			name:   "short_output",
			tamper: testutil.TamperField(soxr.CallProcess, "out", []float32{}),
			typ:    "soxr_process.progress", field: "out",
		},
		{
			name:   "oversized_status",
			tamper: testutil.TamperField(soxr.CallProcess, "error", strings.Repeat("x", 200_000)),
			typ:    "soxr_error_t", field: "error",
		},
		{
			name: "nan_output",
			tamper: func(fn string, res []byte) []byte {
				var r soxr.ProcessResult
				if fn != soxr.CallProcess || codec.Unmarshal(res, &r) != nil || len(r.Out) == 0 {
					return res
				}
				r.Out[0] = float32(math.NaN())
				data, _ := codec.Marshal(r)
				return data
			},
			typ: "soxr_process.progress", field: "out[0]",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := testutil.NewRecorder()
			var logs bytes.Buffer
			s := New(rec, slog.New(slog.NewTextHandler(&logs, nil)))
			h := newConverter(t, s, 0.5)
			before := h.State()

			rec.Tamper = tt.tamper
			out := make([]float32, 256)
			for i := range out {
				out[i] = 7
			}
			idone, odone, err := s.Process(h, testutil.Sine(256, 440, 44100), out, false)

			testutil.RequireViolation(t, err, tt.typ, tt.field)
			assert.Zero(t, idone)
			assert.Zero(t, odone)
			assert.Equal(t, before, h.State(), "handle must not advance")
			assert.Equal(t, float32(7), out[0], "output must not be written")
			assert.Equal(t, rec.Created(), rec.Destroyed())
			assert.Contains(t, logs.String(), "sandbox value rejected")
			assert.Contains(t, logs.String(), "ctype=")
		})
	}
}

// A status is copied into a NativeError only when it is short enough.
func TestStatus_Bounded(t *testing.T) {
	tests := []struct {
		name string
		call string
		run  func(s *Session, h *Handle) error
	}{
		{
			name: "create",
			call: soxr.CallCreate,
			run: func(s *Session, h *Handle) error {
				_, err := s.CreateHandle(1, 0.5, h.Converter().QSpec)
				return err
			},
		},
		{
			name: "set_io_ratio",
			call: soxr.CallSetIORatio,
			run: func(s *Session, h *Handle) error {
				return s.SetRatio(h, 0.5)
			},
		},
		{
			name: "process",
			call: soxr.CallProcess,
			run: func(s *Session, h *Handle) error {
				_, _, err := s.Process(h, testutil.Sine(16, 440, 44100), make([]float32, 16), false)
				return err
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := testutil.NewRecorder()
			s := New(rec, nil)
			h := newConverter(t, s, 0.5)
			before := h.State()

			rec.Tamper = testutil.TamperField(tt.call, "error", strings.Repeat("x", 257))
			err := tt.run(s, h)
			testutil.RequireViolation(t, err, "soxr_error_t", "error")
			assert.NotErrorIs(t, err, ErrNative)
			assert.Equal(t, before, h.State())

			limit := strings.Repeat("x", 256)
			rec.Tamper = testutil.TamperField(tt.call, "error", limit)
			err = tt.run(s, h)
			var nerr *NativeError
			require.True(t, errors.As(err, &nerr), "got %v", err)
			assert.Equal(t, limit, nerr.Message)
			assert.Equal(t, tt.call, nerr.Call)
		})
	}
}

func TestProcess_UndeclaredResultField(t *testing.T) {
	rec := testutil.NewRecorder()
	s := New(rec, nil)
	h := newConverter(t, s, 0.5)

	rec.Tamper = testutil.TamperField(soxr.CallProcess, "extra", 1)
	_, _, err := s.Process(h, testutil.Sine(16, 440, 44100), make([]float32, 16), false)
	assert.ErrorIs(t, err, taint.ErrSandboxViolation)
}

func TestProcess_NullHandle(t *testing.T) {
	rec := testutil.NewRecorder()
	s := New(rec, nil)
	h := newConverter(t, s, 0.5)

	rec.Tamper = testutil.TamperField(soxr.CallProcess, "handle", nil)
	_, _, err := s.Process(h, testutil.Sine(16, 440, 44100), make([]float32, 16), false)
	testutil.RequireViolation(t, err, "soxr", "")
}

func TestSession_Trap(t *testing.T) {
	rt := sandbox.NewInProcess(sandbox.NewLibrary(soxr.LibraryName, map[string]sandbox.Export{
		soxr.CallQualitySpec: func([]byte) ([]byte, error) {
			var c *soxr.Converter
			_ = c.NumChannels
			return nil, nil
		},
	}))
	s := New(rt, nil)

	_, err := s.BuildQualitySpec(soxr.MQ, 0)
	require.ErrorIs(t, err, sandbox.ErrTrap)
	assert.Zero(t, rt.Live())

	_, err = s.CreateHandle(1, 0.5, soxr.QualitySpecFor(soxr.MQ, 0))
	assert.ErrorIs(t, err, sandbox.ErrUnknownExport)
	assert.Zero(t, rt.Live())
}

var errDestroy = errors.New("destroy failed")

type leakyRuntime struct {
	sandbox.Runtime
}

type leakyInstance struct {
	sandbox.Instance
}

func (r leakyRuntime) Create() (sandbox.Instance, error) {
	inst, err := r.Runtime.Create()
	if err != nil {
		return nil, err
	}
	return leakyInstance{inst}, nil
}

func (i leakyInstance) Destroy() error {
	_ = i.Instance.Destroy()
	return errDestroy
}

func TestSession_DestroyFailureJoined(t *testing.T) {
	s := New(leakyRuntime{sandbox.NewInProcess(soxr.NewLibrary())}, nil)

	_, err := s.BuildQualitySpec(soxr.MQ, 0)
	assert.ErrorIs(t, err, errDestroy)
}

func TestNativeError(t *testing.T) {
	err := &NativeError{Call: soxr.CallProcess, Message: "io ratio not set"}
	assert.EqualError(t, err, "soxr_process failed: io ratio not set")
	assert.ErrorIs(t, err, ErrNative)
}
