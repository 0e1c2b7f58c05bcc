package version

// Version is the current build version. Overridden at link time with
// -ldflags "-X stadiumhq/pkg/version.Version=...".
var Version = "v0.3.1"
