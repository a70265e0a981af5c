// Copyright 2021 The Penguin Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package test holds the conformance suite run against every
// storage.StateStorer implementation.
package test

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/penguintop/pkarr/pkg/storage"
)

const (
	key1 = "key1" // stores the serialized type
	key2 = "key2" // stores a json array
)

var value2 = []string{"a", "b", "c"}

type serializingType struct {
	value string
}

func (st serializingType) MarshalBinary() (data []byte, err error) {
	d := []byte(st.value)

	return d, nil
}

func (st *serializingType) UnmarshalBinary(data []byte) (err error) {
	st.value = string(data)
	return nil
}

// Run tests a state store implementation.
func Run(t *testing.T, f func(t *testing.T) storage.StateStorer) {
	t.Helper()

	t.Run("test_put_get", func(t *testing.T) { testPutGet(t, f) })
	t.Run("test_delete", func(t *testing.T) { testDelete(t, f) })
	t.Run("test_iterator", func(t *testing.T) { testIterator(t, f) })
}

func testPutGet(t *testing.T, f func(t *testing.T) storage.StateStorer) {
	store := f(t)

	insertValues(t, store, key1, key2, value2)

	var st serializingType
	if err := store.Get(key1, &st); err != nil {
		t.Fatal(err)
	}
	if st.value != key1 {
		t.Fatalf("got %q, want %q", st.value, key1)
	}

	var got []string
	if err := store.Get(key2, &got); err != nil {
		t.Fatal(err)
	}
	if strings.Join(got, ",") != strings.Join(value2, ",") {
		t.Fatalf("got %v, want %v", got, value2)
	}

	if err := store.Get("missing", &got); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("got error %v, want %v", err, storage.ErrNotFound)
	}
}

func testDelete(t *testing.T, f func(t *testing.T) storage.StateStorer) {
	store := f(t)

	insertValues(t, store, key1, key2, value2)

	if err := store.Delete(key1); err != nil {
		t.Fatal(err)
	}

	var st serializingType
	if err := store.Get(key1, &st); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("got error %v, want %v", err, storage.ErrNotFound)
	}
}

func testIterator(t *testing.T, f func(t *testing.T) storage.StateStorer) {
	store := f(t)

	insertValues(t, store, "prefix-a", "prefix-b", value2)
	insertValues(t, store, "other-a", "other-b", value2)

	var keys []string
	err := store.Iterate("prefix-", func(k, v []byte) (bool, error) {
		if !strings.HasPrefix(string(k), "prefix-") {
			return true, errors.New("iterator returned a key outside of the prefix")
		}
		keys = append(keys, string(k))
		return false, nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(keys) != 2 {
		t.Fatalf("got %v keys, want %v", len(keys), 2)
	}

	var count int
	err = store.Iterate("prefix-", func(k, v []byte) (bool, error) {
		count++
		return true, nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Fatalf("iteration did not stop: visited %v keys", count)
	}
}

func insertValues(t *testing.T, store storage.StateStorer, key1, key2 string, value2 []string) {
	t.Helper()

	if err := store.Put(key1, &serializingType{value: key1}); err != nil {
		t.Fatal(err)
	}

	b, err := json.Marshal(value2)
	if err != nil {
		t.Fatal(err)
	}
	var v []string
	if err := json.Unmarshal(b, &v); err != nil {
		t.Fatal(err)
	}
	if err := store.Put(key2, v); err != nil {
		t.Fatal(err)
	}
}
