// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package scan

import "strings"

// importToPackage maps Python import names to the package names that
// actually install them. Imports not in the table install under their
// own name.
var importToPackage = map[string]string{
	"cv2":         "opencv-python",
	"PIL":         "pillow",
	"sklearn":     "scikit-learn",
	"skimage":     "scikit-image",
	"yaml":        "pyyaml",
	"dotenv":      "python-dotenv",
	"bs4":         "beautifulsoup4",
	"dateutil":    "python-dateutil",
	"magic":       "python-magic",
	"OpenSSL":     "pyopenssl",
	"serial":      "pyserial",
	"usb":         "pyusb",
	"git":         "gitpython",
	"jwt":         "pyjwt",
	"Crypto":      "pycryptodome",
	"psycopg2":    "psycopg2-binary",
	"llama_index": "llama-index",
	"pinecone":    "pinecone-client",
	"websocket":   "websocket-client",
}

// MapImport returns the installable package name for an import name.
func MapImport(importName string) string {
	if pkg, ok := importToPackage[importName]; ok {
		return pkg
	}
	return importName
}

// pythonStdlib is the fixed exclusion table of standard library module
// names. Names with a leading underscore are excluded separately.
var pythonStdlib = map[string]struct{}{}

func init() {
	names := []string{
		"abc", "argparse", "array", "ast", "asyncio", "atexit", "base64",
		"binascii", "bisect", "builtins", "bz2", "calendar", "cgi", "cgitb",
		"cmath", "cmd", "code", "codecs", "codeop", "collections", "colorsys",
		"compileall", "concurrent", "configparser", "contextlib", "copy",
		"csv", "ctypes", "curses", "dataclasses", "datetime", "decimal",
		"difflib", "dis", "distutils", "doctest", "email", "ensurepip",
		"enum", "errno", "faulthandler", "fcntl", "filecmp", "fileinput",
		"fnmatch", "fractions", "ftplib", "functools", "gc", "getopt",
		"getpass", "gettext", "glob", "grp", "gzip", "hashlib", "heapq",
		"html", "http", "imaplib", "importlib", "inspect", "io", "ipaddress",
		"itertools", "json", "keyword", "linecache", "locale", "logging",
		"lzma", "math", "mmap", "multiprocessing", "netrc", "numbers",
		"operator", "os", "pathlib", "pdb", "pickle", "pkgutil", "platform",
		"poplib", "pprint", "profile", "pty", "pwd", "py_compile", "pydoc",
		"queue", "random", "re", "readline", "reprlib", "resource", "runpy",
		"sched", "secrets", "select", "selectors", "shelve", "shlex",
		"shutil", "signal", "site", "smtplib", "socket", "socketserver",
		"sqlite3", "ssl", "stat", "statistics", "string", "struct",
		"subprocess", "symtable", "sys", "sysconfig", "tarfile", "telnetlib",
		"tempfile", "termios", "textwrap", "threading", "time", "timeit",
		"token", "tokenize", "traceback", "tty", "turtle", "types", "typing",
		"unicodedata", "unittest", "urllib", "uuid", "venv", "warnings",
		"wave", "weakref", "webbrowser", "wsgiref", "xml", "xmlrpc",
		"zipfile", "zipimport", "zlib", "zoneinfo",
	}
	for _, n := range names {
		pythonStdlib[n] = struct{}{}
	}
}

// IsStdlib reports whether an import name belongs to the Python standard
// library and should never become a dependency.
func IsStdlib(name string) bool {
	if strings.HasPrefix(name, "_") {
		return true
	}
	_, ok := pythonStdlib[name]
	return ok
}
