// Package confloader loads layered configuration with koanf.
//
// Sources, lowest priority first:
//
//  1. Values already present in the target struct (defaults)
//  2. A YAML file
//  3. Environment variables with the LOCKBOX_ prefix
//  4. Overrides, typically command-line flags
//
// Environment names map to keys by lowercasing and turning the first
// underscore after the prefix into a dot: LOCKBOX_STORAGE_DATA_DIR becomes
// storage.data_dir.
package confloader
