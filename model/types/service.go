package types

// Service is an action service executed inside a worker process. Each
// service groups related operations (document, image, archive, cleanup).
type Service interface {
	Name() string
	Methods() Signatures
	Method(name string) (Executable, error)
}
