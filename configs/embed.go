// Package configs provides embedded configuration templates for askdocs.
//
// The template is embedded at build time so `askdocs init` can create a
// commented starting config without shipping extra files alongside the
// binary.
package configs

import _ "embed"

// ConfigTemplate is the annotated default configuration.
// Created by `askdocs init` at <data-dir>/askdocs.yaml.
//
//go:embed askdocs.example.yaml
var ConfigTemplate string
