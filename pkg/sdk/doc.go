// Package lcsearch provides a Go client for the lcsearch light-curve
// search service.
//
// Searches are submitted over HTTP and answered as a stream of status
// events; the final event carries the dataset id and match count.
//
//	client := lcsearch.New("http://localhost:8080")
//	stream, _ := client.ConeSearch(ctx, lcsearch.ConeRequest{
//	    Coordinates:  "290.0 45.0",
//	    RadiusArcmin: 15,
//	})
//	defer stream.Close()
//	final, _ := stream.Wait()
//	ds, _ := client.Dataset(ctx, stream.SetID())
package lcsearch
