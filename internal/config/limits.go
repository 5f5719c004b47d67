package config

const (
	// MaxFolderNameLength is the maximum length for folder names.
	// Limited to 255 so names fit a VARCHAR(255) if the column is ever narrowed.
	MaxFolderNameLength = 255

	// MaxFolderIDLength bounds caller-supplied folder ids. UUIDs are 36.
	MaxFolderIDLength = 128

	// MaxTaskIDLength bounds external task ids.
	MaxTaskIDLength = 128

	// MaxFolderDepth caps the ancestor walk during move validation.
	// A chain longer than this is treated as corrupt rather than walked forever.
	MaxFolderDepth = 256

	// DefaultHistoryPageSize is used when a list request omits limit.
	DefaultHistoryPageSize = 50

	// MaxHistoryPageSize caps a single history page.
	MaxHistoryPageSize = 500

	// MaxImportBatchSize caps the number of payloads in one batch import.
	MaxImportBatchSize = 1000
)
