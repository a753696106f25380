// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package dispatch

// Response texts devices expect.
const (
	TextRegistered     = "Registered"
	TextReady          = "Ready to receive chunks"
	TextUploadComplete = "upload complete"
	TextUploadFailed   = "upload failed"
	TextUnknownRequest = "Oops!"
)
