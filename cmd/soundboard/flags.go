package main

import "github.com/urfave/cli/v3"

func allFlags() []cli.Flag {
	flags := make([]cli.Flag, 0, len(generalFlags())+len(storageFlags()))
	flags = append(flags, generalFlags()...)
	flags = append(flags, storageFlags()...)

	return flags
}

const (
	FlagConfig   = "config"
	EnvConfig    = "SOUNDBOARD_CONFIG"
	FlagLogLevel = "log-level"
	EnvLogLevel  = "SOUNDBOARD_LOG_LEVEL"
	FlagNoColor  = "no-color"
	EnvNoColor   = "SOUNDBOARD_NO_COLOR"
)

func generalFlags() []cli.Flag {
	category := "general"

	return []cli.Flag{
		&cli.StringFlag{
			Name:     FlagConfig,
			Aliases:  []string{"c"},
			Category: category,
			Sources:  cli.EnvVars(EnvConfig),
			Usage:    "Read settings from `FILE` instead of the platform config dir.",
		},
		&cli.StringFlag{
			Name:     FlagLogLevel,
			Aliases:  []string{"l"},
			Category: category,
			Sources:  cli.EnvVars(EnvLogLevel),
			Usage:    "Log `LEVEL` (debug, info, warn, error).",
		},
		&cli.BoolFlag{
			Name:     FlagNoColor,
			Aliases:  []string{"C"},
			Category: category,
			Sources:  cli.EnvVars(EnvNoColor),
			Value:    false,
			Usage:    "Disable coloration.",
		},
	}
}

const (
	FlagAudioDir = "audio-dir"
	EnvAudioDir  = "SOUNDBOARD_AUDIO_DIR"
	FlagRegistry = "registry"
	EnvRegistry  = "SOUNDBOARD_REGISTRY"
)

func storageFlags() []cli.Flag {
	category := "storage"

	return []cli.Flag{
		&cli.StringFlag{
			Name:     FlagAudioDir,
			Aliases:  []string{"d"},
			Category: category,
			Sources:  cli.EnvVars(EnvAudioDir),
			Usage:    "The `DIRECTORY` recordings are written to.",
		},
		&cli.StringFlag{
			Name:     FlagRegistry,
			Aliases:  []string{"r"},
			Category: category,
			Sources:  cli.EnvVars(EnvRegistry),
			Usage:    "The JSON `FILE` holding sounds and their hotkeys.",
		},
	}
}

const (
	FlagDuration = "duration"
	FlagDevice   = "device"
	FlagYes      = "yes"
)

func recordFlags() []cli.Flag {
	return []cli.Flag{
		&cli.DurationFlag{
			Name:  FlagDuration,
			Usage: "Stop after `DURATION` instead of waiting for Enter.",
		},
		&cli.StringFlag{
			Name:  FlagDevice,
			Usage: "Record from the input `DEVICE` instead of the configured one.",
		},
	}
}

func playFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  FlagDevice,
			Usage: "Play on the output `DEVICE` instead of the sound's own.",
		},
	}
}

func deleteFlags() []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{
			Name:    FlagYes,
			Aliases: []string{"y"},
			Usage:   "Delete without asking.",
		},
	}
}
