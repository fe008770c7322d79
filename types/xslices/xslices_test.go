// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package xslices

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSlices(t *testing.T) {
	s := []int{3, 1, 2}
	c := Copy(s)
	c[0] = 7
	assert.Equal(t, 3, s[0])
	assert.Nil(t, Copy[int](nil))

	assert.Equal(t, []float32{2, 2, 2}, SliceWithValue(3, float32(2)))
	assert.Equal(t, []int{5, 6, 7}, Iota(5, 3))
	assert.Equal(t, 6, Product(s))
	assert.Equal(t, 1, Product([]int{}))
	assert.Equal(t, []string{"3", "1", "2"}, Map(s, strconv.Itoa))
	assert.Equal(t, []string{"a", "b", "c"}, SortedKeys(map[string]int{"c": 0, "a": 1, "b": 2}))
}
