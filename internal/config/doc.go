// SPDX-License-Identifier: MPL-2.0

// Package config handles modmapper configuration using Viper with CUE as the file format.
//
// Configuration is loaded from $XDG_CONFIG_HOME/modmapper/config.cue (~/Library/Application
// Support/modmapper/config.cue on macOS, %APPDATA%\modmapper\config.cue on Windows), or from
// an explicit file. The file is validated against the embedded #Config schema
// (config_schema.cue) before it is merged over the defaults. Environment variables prefixed
// with MODMAPPER_ override file values; a .env file in the working directory is read first.
package config
