package main

// CLIResult is the top-level JSON envelope for all query commands.
type CLIResult struct {
	Command    string `json:"command"`
	Results    any    `json:"results"`
	TotalCount *int   `json:"total_count,omitempty"`
	Error      string `json:"error,omitempty"`
}

// CLITypes describes the deduced types of a statement.
type CLITypes struct {
	Statement string   `json:"statement"`
	Raw       string   `json:"raw"`
	Offset    int      `json:"offset"`
	Length    int      `json:"length"`
	Receiver  []string `json:"receiver,omitempty"`
	Result    []string `json:"result,omitempty"`
}

// CLICatalogStats counts the catalog rows.
type CLICatalogStats struct {
	Sources    int `json:"sources"`
	Types      int `json:"types"`
	Tasks      int `json:"tasks"`
	Parameters int `json:"parameters"`
	Literals   int `json:"literals"`
}
