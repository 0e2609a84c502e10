package core

// Version is the running build version, reported to peers such as MCP
// servers and the telemetry resource. The binary overrides it at startup.
var Version = "dev"
