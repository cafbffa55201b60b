// Package stage binds the media packages to the workflow manager. Each
// stage function decodes its job params, drives one pipeline step (source
// fetch, transcode, speech recognition, translation, burn-in export), and
// records produced artifacts on the asset row.
package stage
