// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package dtypes

import (
	"testing"

	"github.com/gomlx/devbuf/pkg/core/dtypes/bfloat16"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/x448/float16"
)

func TestMapOfNames(t *testing.T) {
	if MapOfNames["Float16"] != Float16 {
		t.Fatalf("expected MapOfNames[\"Float16\"] to be Float16, got %v", MapOfNames["Float16"])
	}
	if MapOfNames["float16"] != Float16 {
		t.Fatalf("expected MapOfNames[\"float16\"] to be Float16, got %v", MapOfNames["float16"])
	}
	if MapOfNames["f16"] != Float16 {
		t.Fatalf("expected MapOfNames[\"f16\"] to be Float16, got %v", MapOfNames["f16"])
	}
	if MapOfNames["bf16"] != BFloat16 {
		t.Fatalf("expected MapOfNames[\"bf16\"] to be BFloat16, got %v", MapOfNames["bf16"])
	}
}

func TestFromName(t *testing.T) {
	dtype, err := FromName("F32")
	require.NoError(t, err)
	assert.Equal(t, Float32, dtype)

	dtype, err = FromName("UINT8")
	require.NoError(t, err)
	assert.Equal(t, Uint8, dtype)

	_, err = FromName("bool")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Int8 or Uint8")

	_, err = FromName("complex64")
	require.Error(t, err)

	_, err = FromName("invalid")
	require.Error(t, err)
}

func TestFromGenericsType(t *testing.T) {
	assert.Equal(t, Float32, FromGenericsType[float32]())
	assert.Equal(t, Float64, FromGenericsType[float64]())
	assert.Equal(t, Float16, FromGenericsType[float16.Float16]())
	assert.Equal(t, BFloat16, FromGenericsType[bfloat16.BFloat16]())
	assert.Equal(t, Int8, FromGenericsType[int8]())
	assert.Equal(t, Uint64, FromGenericsType[uint64]())
	assert.Equal(t, 8, FromGenericsType[int64]().Size())
}

func TestSizes(t *testing.T) {
	assert.Equal(t, 2, Float16.Size())
	assert.Equal(t, 2, BFloat16.Size())
	assert.Equal(t, 32, Float32.Bits())
	assert.Equal(t, uintptr(40), Float64.Memory(5))
	assert.Equal(t, uintptr(0), Int8.Memory(0))
	assert.Panics(t, func() { Int8.Memory(-1) })
}

func TestIsDeviceElement(t *testing.T) {
	assert.False(t, Bool.IsDeviceElement())
	assert.False(t, InvalidDType.IsDeviceElement())
	assert.False(t, DType(99).IsDeviceElement())
	for _, dtype := range []DType{Int8, Int16, Int32, Int64, Uint8, Uint16, Uint32, Uint64, Float16, BFloat16, Float32, Float64} {
		assert.Truef(t, dtype.IsDeviceElement(), "dtype %s", dtype)
	}
	assert.Equal(t, "DType(99)", DType(99).String())
}

func TestHalfFromFloat32(t *testing.T) {
	h := HalfFromFloat32[float16.Float16](1.5)
	assert.Equal(t, float32(1.5), h.Float32())
	b := HalfFromFloat32[bfloat16.BFloat16](-2)
	assert.Equal(t, float32(-2), b.Float32())
}
