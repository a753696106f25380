package validate

import (
	"testing"
)

// BenchmarkValidatorRange benchmarks Range validation
func BenchmarkValidatorRange(b *testing.B) {
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		v := New()
		v.Range("workers.size", 8, 0, 1024)
	}
}

// BenchmarkValidatorListenAddr benchmarks ListenAddr validation
func BenchmarkValidatorListenAddr(b *testing.B) {
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		v := New()
		v.ListenAddr("device.listenAddr", "0.0.0.0:6666", false)
	}
}

// BenchmarkValidatorMultipleChecks benchmarks a typical config pass
func BenchmarkValidatorMultipleChecks(b *testing.B) {
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		v := New()
		v.ListenAddr("api.listenAddr", ":8088", false)
		v.ListenAddr("device.listenAddr", ":6666", false)
		v.OneOf("names.backend", "file", []string{"file", "sqlite", "badger", "redis", "none"})
		v.NonNegative("workers.queueSize", 1024)
		v.FloatRange("telemetry.samplingRate", 1.0, 0, 1)
		_ = v.Err()
	}
}

// BenchmarkValidatorWithErrors benchmarks validation with accumulated errors
func BenchmarkValidatorWithErrors(b *testing.B) {
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		v := New()
		v.ListenAddr("device.listenAddr", "nope", false)
		v.NonNegative("workers.size", -1)
		_ = v.Err().Error()
	}
}
