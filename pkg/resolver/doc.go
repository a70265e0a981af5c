// Copyright 2021 The Penguin Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package resolver answers record queries for domain names rooted at a
// public key. The last label of such a name is the z-base-32 public key,
// the packet published by that key is resolved through a pkarr client and
// the matching records are returned.
package resolver
