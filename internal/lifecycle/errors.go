// Copyright (C) 2024 Infiniflow, Inc.
// See LICENSE for copying information.

package lifecycle

import "github.com/zeebo/errs"

var errUnexpectedPanic = errs.New("panic in lifecycle item")
