package history

import (
	"encoding/json"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

const untitled = "<Untitled>"

// Extract turns a raw aria2.tellStatus result into an ItemMetaData row.
// If raw does not decode as a status object, a skeleton waiting-state row
// is returned instead — a malformed response should never crash the
// projector, only leave a placeholder behind (spec §4.7).
func Extract(logger *zap.Logger, raw json.RawMessage, gid string) ItemMetaData {
	var info Aria2Status
	if err := json.Unmarshal(raw, &info); err != nil {
		if logger != nil {
			logger.Error("failed to parse aria2 status", zap.String("gid", gid), zap.Error(err))
		}
		return skeleton(gid)
	}

	name := resolveName(info)

	filePaths := make([]string, 0, len(info.Files))
	for _, f := range info.Files {
		if f.Path != "" {
			filePaths = append(filePaths, f.Path)
		}
	}
	filesJSON := encodeFiles(filePaths)

	status := mapStatus(info.Status, filePaths)
	isTorrent := info.BitTorrent != nil

	var sourceURI *string
	if len(info.Files) > 0 {
		for _, u := range info.Files[0].URIs {
			if u.URI != "" {
				v := u.URI
				sourceURI = &v
				break
			}
		}
	}

	var errCode *int64
	if info.ErrorCode != nil {
		if n, err := strconv.ParseInt(*info.ErrorCode, 10, 64); err == nil {
			errCode = &n
		}
	}

	return ItemMetaData{
		GID:             gid,
		Name:            &name,
		Status:          status,
		Dir:             strPtr(info.Dir),
		Files:           filesJSON,
		TotalLength:     strPtr(info.TotalLength),
		CompletedLength: strPtr(info.CompletedLength),
		UploadedLength:  strPtr(info.UploadLength),
		SourceURI:       sourceURI,
		InfoHash:        info.InfoHash,
		ErrorCode:       errCode,
		ErrorMessage:    info.ErrorMessage,
		IsTorrent:       &isTorrent,
	}
}

func mapStatus(raw string, filePaths []string) GidStatus {
	switch raw {
	case "active":
		return StatusActive
	case "waiting":
		return StatusWaiting
	case "paused":
		return StatusPaused
	case "error":
		return StatusError
	case "complete":
		return StatusComplete
	case "removed":
		if anyExists(filePaths) {
			return StatusStopped
		}
		return StatusRemoved
	default:
		return StatusStopped
	}
}

func resolveName(info Aria2Status) string {
	if info.BitTorrent != nil && info.BitTorrent.Info != nil && info.BitTorrent.Info.Name != nil {
		if n := strings.TrimSpace(*info.BitTorrent.Info.Name); n != "" {
			return *info.BitTorrent.Info.Name
		}
	}

	if len(info.Files) > 0 && info.Files[0].Path != "" {
		if base := filepath.Base(info.Files[0].Path); base != "." && base != "/" {
			return base
		}
	}

	for _, f := range info.Files {
		for _, u := range f.URIs {
			parsed, err := url.Parse(u.URI)
			if err != nil {
				continue
			}
			if parsed.Scheme == "magnet" {
				if dn := parsed.Query().Get("dn"); strings.TrimSpace(dn) != "" {
					return dn
				}
				continue
			}
			segs := strings.Split(strings.Trim(parsed.Path, "/"), "/")
			if last := segs[len(segs)-1]; last != "" {
				if decoded, err := url.QueryUnescape(last); err == nil && strings.TrimSpace(decoded) != "" {
					return decoded
				}
			}
		}
	}

	return untitled
}

func skeleton(gid string) ItemMetaData {
	name := untitled
	zero := "0"
	isTorrent := false
	return ItemMetaData{
		GID:             gid,
		Name:            &name,
		Status:          StatusWaiting,
		TotalLength:     &zero,
		CompletedLength: &zero,
		UploadedLength:  &zero,
		IsTorrent:       &isTorrent,
	}
}

func anyExists(paths []string) bool {
	for _, p := range paths {
		if fileExists(p) {
			return true
		}
	}
	return false
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func encodeFiles(paths []string) *string {
	data, err := json.Marshal(paths)
	if err != nil {
		return nil
	}
	s := string(data)
	return &s
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
