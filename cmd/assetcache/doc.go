// Command assetcache prepares job asset caches and maintains the shared
// cache from the command line.
//
//	assetcache prepare --job J --user U id...   materialize assets, print the manifest
//	assetcache seed --user U --id ID file        register a local object for development
//	assetcache serve                             serve the local object store
//	assetcache janitor run|once                  evict from the shared cache
//	assetcache stats                             show shared cache usage
//	assetcache probe                             check hard-link support
//	assetcache config sample|show                print configuration
package main
