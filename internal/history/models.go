package history

import "time"

// GidStatus is the lifecycle state of a tracked download, stored as TEXT.
type GidStatus string

const (
	StatusError    GidStatus = "error"    // onDownloadError
	StatusPaused   GidStatus = "paused"   // onDownloadPause
	StatusActive   GidStatus = "active"   // onDownloadStart, aria2.tellActive
	StatusWaiting  GidStatus = "waiting"  // aria2.tellWaiting
	StatusRemoved  GidStatus = "removed"  // onDownloadStop and the file is gone
	StatusStopped  GidStatus = "stopped"  // onDownloadStop but the partial file still exists
	StatusComplete GidStatus = "complete" // onDownloadComplete or onBtDownloadComplete
)

// ItemMetaData is the row shape for a tracked download, one per gid.
// Field naming mirrors the 1DM-style mobile client contract this bridge
// feeds, so most fields serialize camelCase over the wire.
type ItemMetaData struct {
	GID              string     `gorm:"type:text;primaryKey" json:"gid"`
	UserID           int64      `gorm:"not null;index" json:"-"`
	Name             *string    `json:"name"`
	Status           GidStatus  `gorm:"type:text;not null;index" json:"status"`
	Dir              *string    `json:"dir"`
	Files            *string    `json:"files"` // JSON array of file paths
	TotalLength      *string    `json:"totalLength"`
	CompletedLength  *string    `json:"completedLength"`
	UploadedLength   *string    `json:"uploadedLength"`
	SourceURI        *string    `json:"sourceUri"`
	InfoHash         *string    `json:"infoHash"`
	ErrorCode        *int64     `json:"errorCode"`
	ErrorMessage     *string    `json:"errorMessage"`
	IsTorrent        *bool      `json:"isTorrent"`
	CreatedAt        time.Time  `gorm:"not null;autoCreateTime" json:"createdAt"`
	CompletedAt      *time.Time `json:"completedAt"`
	UpdatedAt        time.Time  `gorm:"not null;autoUpdateTime" json:"-"`
}

func (ItemMetaData) TableName() string { return "download_history" }

// Aria2Uri is one announce/source URI for a file, as reported by tellStatus.
type Aria2Uri struct {
	URI    string `json:"uri"`
	Status string `json:"status"`
}

// Aria2File is one file entry within a tellStatus response.
type Aria2File struct {
	Index           string     `json:"index"`
	Path            string     `json:"path"`
	Length          string     `json:"length"`
	CompletedLength string     `json:"completedLength"`
	Selected        string     `json:"selected"`
	URIs            []Aria2Uri `json:"uris"`
}

// BitTorrentInfo carries the torrent's display name, when present.
type BitTorrentInfo struct {
	Name *string `json:"name"`
}

// BitTorrent is the bittorrent metadata block of a tellStatus response.
type BitTorrent struct {
	AnnounceList [][]string      `json:"announceList"`
	Comment      *string         `json:"comment"`
	CreationDate *int64          `json:"creationDate"`
	Mode         *string         `json:"mode"` // "single" or "multi"
	Info         *BitTorrentInfo `json:"info"`
}

// GlobalStat is the decoded result of aria2.getGlobalStat.
type GlobalStat struct {
	DownloadSpeed   string `json:"downloadSpeed"`
	UploadSpeed     string `json:"uploadSpeed"`
	NumActive       string `json:"numActive"`
	NumWaiting      string `json:"numWaiting"`
	NumStopped      string `json:"numStopped"`
	NumStoppedTotal string `json:"numStoppedTotal"`
}

// Aria2Status is the decoded result of aria2.tellStatus for one gid.
type Aria2Status struct {
	GID             string      `json:"gid"`
	Status          string      `json:"status"`
	Dir             string      `json:"dir"`
	DownloadSpeed   string      `json:"downloadSpeed"`
	UploadSpeed     string      `json:"uploadSpeed"`
	TotalLength     string      `json:"totalLength"`
	CompletedLength string      `json:"completedLength"`
	UploadLength    string      `json:"uploadLength"`
	ErrorCode       *string     `json:"errorCode"`
	ErrorMessage    *string     `json:"errorMessage"`
	InfoHash        *string     `json:"infoHash"`
	BitTorrent      *BitTorrent `json:"bittorrent"`
	Files           []Aria2File `json:"files"`
	Connections     *string     `json:"connections"`
	NumPieces       *string     `json:"numPieces"`
	NumSeeders      *string     `json:"numSeeders"`
	Seeder          *string     `json:"seeder"`
}

// GidRow is a minimal projection used for bulk reconciliation queries.
type GidRow struct {
	GID    string `gorm:"column:gid"`
	UserID int64  `gorm:"column:user_id"`
}
