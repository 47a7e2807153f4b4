package logfields

import "log/slog"

// Canonical log field name constants to avoid drift across packages.
const (
	KeyRunID      = "run_id"
	KeyStage      = "stage"
	KeyDurationMS = "duration_ms"
	KeyPath       = "path"
	KeySlug       = "slug"
	KeyFolder     = "folder"
	KeyAsset      = "asset"
	KeyURL        = "url"
	KeyCount      = "count"
	KeyBytes      = "bytes"
	KeyFormat     = "format"
	KeyLanguage   = "language"
	KeyMethod     = "method"
	KeyStatus     = "status"
	KeyError      = "error"
)

// Simple helpers returning slog.Attr. Keeping each granular means callers can compose.
func RunID(id string) slog.Attr       { return slog.String(KeyRunID, id) }
func Stage(name string) slog.Attr     { return slog.String(KeyStage, name) }
func DurationMS(ms float64) slog.Attr { return slog.Float64(KeyDurationMS, ms) }
func Path(p string) slog.Attr         { return slog.String(KeyPath, p) }
func Slug(s string) slog.Attr         { return slog.String(KeySlug, s) }
func Folder(f string) slog.Attr       { return slog.String(KeyFolder, f) }
func Asset(a string) slog.Attr        { return slog.String(KeyAsset, a) }
func URL(u string) slog.Attr          { return slog.String(KeyURL, u) }
func Count(n int) slog.Attr           { return slog.Int(KeyCount, n) }
func Bytes(n int64) slog.Attr         { return slog.Int64(KeyBytes, n) }
func Format(f string) slog.Attr       { return slog.String(KeyFormat, f) }
func Language(l string) slog.Attr     { return slog.String(KeyLanguage, l) }
func Method(m string) slog.Attr       { return slog.String(KeyMethod, m) }
func Status(code int) slog.Attr       { return slog.Int(KeyStatus, code) }
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
