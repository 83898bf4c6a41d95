package printer

import "strings"

// Mode selects the deployment flavour of the browser launch.
type Mode string

const (
	ModeProduction  Mode = "production"
	ModeDevelopment Mode = "development"
)

// DefaultProductionExecPath is the bundled browser binary in the runtime image.
const DefaultProductionExecPath = "/opt/chromium/chromium"

// ParseMode maps a configuration value to a Mode. Anything that is not
// production is treated as development.
func ParseMode(v string) Mode {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "production", "prod":
		return ModeProduction
	default:
		return ModeDevelopment
	}
}

// LaunchConfig is the process-wide browser launch configuration. It is chosen
// once at start-up and never mutated.
type LaunchConfig struct {
	Mode          Mode
	ExecPath      string
	Headless      bool
	Sandbox       bool
	DisableGPU    bool
	DisableDevShm bool
	// ExtraFlags are passed to the browser as --name=value.
	ExtraFlags map[string]string
}

// ProductionLaunch runs the bundled binary headless with the sandbox, GPU and
// /dev/shm disabled, as required inside minimal containers.
func ProductionLaunch(execPath string) LaunchConfig {
	if execPath == "" {
		execPath = DefaultProductionExecPath
	}
	return LaunchConfig{
		Mode:          ModeProduction,
		ExecPath:      execPath,
		Headless:      true,
		Sandbox:       false,
		DisableGPU:    true,
		DisableDevShm: true,
	}
}

// DevelopmentLaunch runs a locally installed browser with the sandbox on. An
// empty execPath lets the launcher search the usual install locations.
func DevelopmentLaunch(execPath string) LaunchConfig {
	return LaunchConfig{
		Mode:     ModeDevelopment,
		ExecPath: execPath,
		Headless: true,
		Sandbox:  true,
	}
}

// LaunchFor returns the launch configuration for mode.
func LaunchFor(mode Mode, execPath string) LaunchConfig {
	if mode == ModeProduction {
		return ProductionLaunch(execPath)
	}
	return DevelopmentLaunch(execPath)
}
