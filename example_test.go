package mpcwatch_test

import (
	"fmt"

	"github.com/bft-labs/mpcwatch"
)

// ExampleNew shows port inference from the dashboard page URL.
func ExampleNew() {
	cfg := mpcwatch.DefaultConfig()
	cfg.PageURL = "http://localhost:8032/"

	svc, err := mpcwatch.New(cfg, nil)
	if err != nil {
		fmt.Printf("failed to create service: %v\n", err)
		return
	}
	fmt.Println(svc.Self().Name, svc.Endpoint())

	// Output: Participant 3 http://localhost:8081
}

// ExampleNew_override shows an explicit backend port winning over the page.
func ExampleNew_override() {
	cfg := mpcwatch.DefaultConfig()
	cfg.PageURL = "http://localhost:8031/?backendPort=8085"

	svc, err := mpcwatch.New(cfg, nil)
	if err != nil {
		fmt.Printf("failed to create service: %v\n", err)
		return
	}
	fmt.Println(svc.Self().Name, svc.Endpoint())

	// Output: Participant 2 http://localhost:8085
}
