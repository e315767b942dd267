// Package options contains the program options.
package options

// Parameters contains file path options.
type Parameters struct {
	Input  string // ExeFS directory or single module file
	Output string // directory to write the program images to
	Config string // YAML configuration file
}

// Flags contains behavior options.
type Flags struct {
	BaseAddress uint64   // base address of the first module
	Modules     []string // module names in load order
	Parallel    bool     // decompress segments concurrently
	Verify      bool     // verify segment hashes
	Compress    bool     // zstd compress written images
	Force       bool     // load even without a valid main.npdm
	JSON        bool     // print the report as JSON
	Debug       bool
	Quiet       bool
}

// Program options of the loader.
type Program struct {
	Parameters
	Flags
}
