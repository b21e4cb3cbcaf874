// Command schema-generator regenerates the embedded wastenet.yml schema
// from the config types. The output path defaults to
// schema/wastenet.schema.json relative to the working directory.
package main

import (
	"log"
	"os"
	"path/filepath"

	"github.com/grovetools/wastenet/config"
)

func main() {
	schemaBytes, err := config.GenerateSchema()
	if err != nil {
		log.Fatalf("Error generating schema: %v", err)
	}

	outputPath := filepath.Join("schema", "wastenet.schema.json")
	if len(os.Args) > 1 {
		outputPath = os.Args[1]
	}
	if err := os.MkdirAll(filepath.Dir(outputPath), 0755); err != nil {
		log.Fatalf("Error creating schema directory: %v", err)
	}

	if err := os.WriteFile(outputPath, append(schemaBytes, '\n'), 0644); err != nil {
		log.Fatalf("Error writing schema file: %v", err)
	}

	log.Printf("Successfully generated schema at %s", outputPath)
}
