// Package provider selects the TLS provider that backs every context the
// process creates.
//
// A Registry owns the priority-ordered provider list. Resolve picks a
// provider by name, or probes the list for a known one when no name is
// given, validates it once and caches the resulting Facade. Resolution never
// fails; the worst case is a facade over the hardcoded GoTLS provider.
//
// Compliance moves the GoFIPS provider to the top of the list once per
// process and sets the FIPS flag that providers consult when building
// contexts. It is the only operation here that returns a fatal error.
//
//	registry := provider.Init(provider.WithLogger(logger))
//	if fips {
//		if err := provider.NewCompliance(registry).Enable(ctx); err != nil {
//			return err
//		}
//	}
//	facade := registry.Resolve(ctx, "")
package provider
