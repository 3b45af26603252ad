// Package web holds the status page served by the monitor.
package web

import (
	"embed"
	"io/fs"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
)

// DevEnv names the variable that makes the monitor read the page from the
// source tree, so edits show up on reload.
const DevEnv = "UAVLINK_MONITOR_DEV"

//go:embed dist/*
var dist embed.FS

// Assets returns the files of the status page.
func Assets() http.FileSystem {
	if devMode() {
		if dir, ok := sourceDir(); ok {
			log.Printf("monitor: serving the page from %s", dir)
			return http.Dir(dir)
		}
	}

	page, err := fs.Sub(dist, "dist")
	if err != nil {
		log.Panic(err)
	}

	return http.FS(page)
}

func devMode() bool {
	on, err := strconv.ParseBool(os.Getenv(DevEnv))
	return err == nil && on
}

func sourceDir() (string, bool) {
	_, file, _, ok := runtime.Caller(0)
	if !ok {
		return "", false
	}

	return filepath.Join(filepath.Dir(file), "dist"), true
}
