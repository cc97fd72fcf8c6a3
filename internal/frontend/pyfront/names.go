// Copyright 2026 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pyfront

func set(names ...string) map[string]bool {
	m := make(map[string]bool, len(names))
	for _, n := range names {
		m[n] = true
	}
	return m
}

// dynamicBuiltins run code chosen at run time.
var dynamicBuiltins = set("eval", "exec", "getattr", "__import__")

// builtins are skipped when called.
var builtins = set(
	"abs", "all", "any", "ascii", "bin", "bool", "breakpoint", "bytearray",
	"bytes", "callable", "chr", "classmethod", "compile", "complex",
	"delattr", "dict", "dir", "divmod", "enumerate", "filter", "float",
	"format", "frozenset", "globals", "hasattr", "hash", "help", "hex", "id",
	"input", "int", "isinstance", "issubclass", "iter", "len", "list",
	"locals", "map", "max", "memoryview", "min", "next", "object", "oct",
	"open", "ord", "pow", "print", "property", "range", "repr", "reversed",
	"round", "set", "setattr", "slice", "sorted", "staticmethod", "str",
	"sum", "super", "tuple", "type", "vars", "zip",
	"ArithmeticError", "AssertionError", "AttributeError", "BaseException",
	"EOFError", "Exception", "ImportError", "IndexError", "KeyError",
	"LookupError", "NotImplementedError", "OSError", "OverflowError",
	"RuntimeError", "StopIteration", "TypeError", "UnicodeDecodeError",
	"UnicodeEncodeError", "ValueError", "ZeroDivisionError",
)

// builtinMethods are methods of the builtin types that libraries rarely
// define. Calls to them on values of unknown type are skipped; other
// method calls are linked by name.
var builtinMethods = set(
	"capitalize", "casefold", "center", "endswith", "expandtabs",
	"isalnum", "isalpha", "isascii", "isdecimal", "isdigit", "isidentifier",
	"islower", "isnumeric", "isprintable", "isspace", "istitle", "isupper",
	"join", "ljust", "lower", "lstrip", "partition", "removeprefix",
	"removesuffix", "rfind", "rindex", "rjust", "rpartition", "rsplit",
	"rstrip", "split", "splitlines", "startswith", "strip", "swapcase",
	"title", "upper", "zfill",
	"append", "extend", "setdefault", "popitem", "isdisjoint", "issubset",
	"issuperset",
)
