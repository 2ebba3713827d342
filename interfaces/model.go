package interfaces

// Initializable is implemented by child view models needing setup once all
// dependencies are provided.
type Initializable interface {
	Init()
}
