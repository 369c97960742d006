package main

import (
	"github.com/opencradle/cradle/pkg/generic"
	"github.com/opencradle/cradle/pkg/log"
	"github.com/opencradle/cradle/pkg/resources"
)

// registerCatalogs installs the request classes this process can serve.
func registerCatalogs(res *resources.Resources) {
	if _, err := generic.NewCatalog(res.Registry); err != nil {
		log.Errorf("failed to register generic catalog", err)
	}
}
