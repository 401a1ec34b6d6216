package version

import "fmt"

const CLIName = "custody"

var (
	Version = "0.3.0"
	Commit  = "dev"
)

func Short() string {
	return Version
}

func Long() string {
	return fmt.Sprintf("%s %s (%s)", CLIName, Version, Commit)
}
