package models

// TotalUnknown marks an upload whose total size was not declared.
const TotalUnknown int64 = -1

// UploadTarget tracks one inbound upload being written to disk.
// BytesWritten is monotonically non-decreasing until the write completes,
// after which the target is not mutated again.
type UploadTarget struct {
	OriginalName    string `json:"original_name"`
	DestinationPath string `json:"destination_path"`
	TotalBytes      int64  `json:"total_bytes"`
	BytesWritten    int64  `json:"bytes_written"`
}
