package interfaces

// StorageManager owns the run history database
type StorageManager interface {
	RunStorage() RunStorage
	DB() interface{}
	Close() error
}
