package main

import (
	"fmt"
	"os"

	"papercast/internal/apidoc"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, "usage: %s <openapi.yaml>...\n", os.Args[0])
		os.Exit(2)
	}

	for _, path := range os.Args[1:] {
		if err := check(path); err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", path, err)
			os.Exit(1)
		}
	}
	fmt.Println("OpenAPI consistency check passed.")
}

func check(path string) error {
	doc, err := apidoc.Load(path)
	if err != nil {
		return err
	}
	ops, err := doc.Operations()
	if err != nil {
		return err
	}
	if len(ops) == 0 {
		return fmt.Errorf("no operations documented")
	}
	if err := doc.ValidateErrorResponse(); err != nil {
		return err
	}
	fmt.Printf("%s: %d operations, %d error codes\n", path, len(ops), len(doc.ErrorCodes()))
	return nil
}
