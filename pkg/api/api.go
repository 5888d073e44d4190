// Package api defines the wire types exchanged with the browser
// extension: observed network events coming in, tracked assets and job
// status going out.
package api

import "time"

// Event is one observed network request as the extension reports it.
type Event struct {
	URL               string `json:"url"`
	Method            string `json:"method,omitempty"`
	ResourceType      string `json:"resourceType"`
	TabID             int    `json:"tabId"`
	TimestampMs       int64  `json:"timestampMs,omitempty"`
	OriginDomain      string `json:"originDomain,omitempty"`
	ParentDocumentURL string `json:"parentDocumentUrl,omitempty"`
	TabTitle          string `json:"tabTitle,omitempty"`
}

// Timestamp converts the millisecond wall-clock stamp, defaulting to now
// when the extension omitted it.
func (e Event) Timestamp() time.Time {
	if e.TimestampMs == 0 {
		return time.Now()
	}
	return time.UnixMilli(e.TimestampMs)
}

// Asset is one tracked media asset as shown in the extension's list.
type Asset struct {
	Key            string    `json:"key"`
	URL            string    `json:"url"`
	TabID          int       `json:"tabId"`
	Title          string    `json:"title,omitempty"`
	DeliveryKind   string    `json:"deliveryKind"`
	IndicatorToken string    `json:"indicatorToken,omitempty"`
	LastUpdatedAt  time.Time `json:"lastUpdatedAt"`
}

// DownloadRequest triggers assembly of one tracked asset.
type DownloadRequest struct {
	TabID     int               `json:"tabId"`
	AssetKey  string            `json:"assetKey"`
	Overrides DownloadOverrides `json:"overrides,omitempty"`
}

// DownloadOverrides are the per-download user settings.
type DownloadOverrides struct {
	Filename        string `json:"filename,omitempty"`
	Folder          string `json:"folder,omitempty"`
	SegmentsPerPart int    `json:"segmentsPerPart,omitempty"`
	Template        string `json:"template,omitempty"`
	Start           *int   `json:"start,omitempty"`
	End             *int   `json:"end,omitempty"`
	Pad             int    `json:"pad,omitempty"`
}

// DownloadResponse returns the identifiers of the jobs that were started.
type DownloadResponse struct {
	JobIDs []string `json:"jobIds"`
}

// TabRequest addresses a whole tab (download-all, clear).
type TabRequest struct {
	TabID int `json:"tabId"`
}
