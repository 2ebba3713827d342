package interfaces

type CommandArgs interface{}

// ViewModeler allows a view model to provide a custom json.Marshal-able instance of itself to provide to the view
type ViewModeler interface {
	ViewModel() interface{}
}

// Command is a generic RPC command that can be requested for execution by the view with JSON arguments
type Command interface {
	// CreateArgs instantiates a JSON object that can be json.Unmarshal-ed into by the view to provide
	// named arguments for the command. Binary commands return nil and receive the raw []byte payload.
	CreateArgs() CommandArgs
	// Execute executes the command given the arguments provided by the view
	Execute(args CommandArgs) error
}

// ViewModelCommandHandler returns a Command for the current view - ViewModels implement this
type ViewModelCommandHandler interface {
	CommandFor(command string) (Command, error)
}

// ViewCommandHandler handles commands requested by the view - the root ViewModel implements this
type ViewCommandHandler interface {
	CommandFor(view, command string) (Command, error)

	NotifyViewTo(viewNotifier ViewNotifier)
}

// ViewNotifier notifies view of a modified view model:
type ViewNotifier interface {
	NotifyView(view string, viewModel interface{})
}

// Download is a file offered to the view for saving.
type Download struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Size int    `json:"size"`
	Hash string `json:"hash"`

	Data []byte `json:"-"`
}

// DownloadProvider looks up offered downloads by id - the web server serves these
type DownloadProvider interface {
	Download(id string) (*Download, bool)
}

// ROMProvider returns the contents of the loaded game by its game id - the web server serves these
type ROMProvider interface {
	ROMContents(gameID string) (name string, contents []byte, ok bool)
}
