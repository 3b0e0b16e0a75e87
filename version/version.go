package version

// Version 发布时通过-ldflags覆盖
var (
	Version = "0.1.0"

	GitCommit = ""
)

func String() string {
	if GitCommit != "" {
		return Version + "-" + GitCommit
	}
	return Version
}
