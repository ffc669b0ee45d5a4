package history

import (
	"encoding/json"
	"testing"
)

func TestExtractResolvesNameFromBitTorrentInfo(t *testing.T) {
	raw := json.RawMessage(`{
		"gid": "abc", "status": "active", "dir": "/dl",
		"downloadSpeed": "0", "uploadSpeed": "0", "totalLength": "100",
		"completedLength": "50", "uploadLength": "0",
		"bittorrent": {"info": {"name": "My Movie"}},
		"files": [{"index":"1","path":"/dl/My Movie/a.mkv","length":"100","completedLength":"50","selected":"true","uris":[]}]
	}`)

	got := Extract(nil, raw, "abc")
	if got.Name == nil || *got.Name != "My Movie" {
		t.Fatalf("Name = %v, want My Movie", got.Name)
	}
	if got.Status != StatusActive {
		t.Fatalf("Status = %v, want active", got.Status)
	}
}

func TestExtractFallsBackToFileBasename(t *testing.T) {
	raw := json.RawMessage(`{
		"gid": "abc", "status": "waiting", "dir": "/dl",
		"downloadSpeed": "0", "uploadSpeed": "0", "totalLength": "0",
		"completedLength": "0", "uploadLength": "0",
		"files": [{"index":"1","path":"/dl/report.pdf","length":"0","completedLength":"0","selected":"true","uris":[]}]
	}`)

	got := Extract(nil, raw, "abc")
	if got.Name == nil || *got.Name != "report.pdf" {
		t.Fatalf("Name = %v, want report.pdf", got.Name)
	}
}

func TestExtractFallsBackToMagnetDisplayName(t *testing.T) {
	raw := json.RawMessage(`{
		"gid": "abc", "status": "waiting", "dir": "/dl",
		"downloadSpeed": "0", "uploadSpeed": "0", "totalLength": "0",
		"completedLength": "0", "uploadLength": "0",
		"files": [{"index":"1","path":"","length":"0","completedLength":"0","selected":"true",
			"uris":[{"uri":"magnet:?xt=urn:btih:abc123&dn=Cool+Release","status":"used"}]}]
	}`)

	got := Extract(nil, raw, "abc")
	if got.Name == nil || *got.Name != "Cool Release" {
		t.Fatalf("Name = %v, want Cool Release", got.Name)
	}
}

func TestExtractDefaultsToUntitledWhenNameCannotBeResolved(t *testing.T) {
	raw := json.RawMessage(`{
		"gid": "abc", "status": "waiting", "dir": "/dl",
		"downloadSpeed": "0", "uploadSpeed": "0", "totalLength": "0",
		"completedLength": "0", "uploadLength": "0", "files": []
	}`)

	got := Extract(nil, raw, "abc")
	if got.Name == nil || *got.Name != untitled {
		t.Fatalf("Name = %v, want %s", got.Name, untitled)
	}
}

func TestExtractRemovedStatusWithMissingFileMeansRemoved(t *testing.T) {
	raw := json.RawMessage(`{
		"gid": "abc", "status": "removed", "dir": "/dl",
		"downloadSpeed": "0", "uploadSpeed": "0", "totalLength": "0",
		"completedLength": "0", "uploadLength": "0",
		"files": [{"index":"1","path":"/nonexistent/path/for/test/xyz","length":"0","completedLength":"0","selected":"true","uris":[]}]
	}`)

	got := Extract(nil, raw, "abc")
	if got.Status != StatusRemoved {
		t.Fatalf("Status = %v, want removed (file does not exist on disk)", got.Status)
	}
}

func TestExtractMalformedResponseReturnsWaitingSkeleton(t *testing.T) {
	got := Extract(nil, json.RawMessage(`not json`), "zz")
	if got.Status != StatusWaiting {
		t.Fatalf("Status = %v, want waiting", got.Status)
	}
	if got.Name == nil || *got.Name != untitled {
		t.Fatalf("Name = %v, want %s", got.Name, untitled)
	}
	if got.GID != "zz" {
		t.Fatalf("GID = %v, want zz", got.GID)
	}
}
