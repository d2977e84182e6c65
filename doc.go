// Package assetcache guarantees that every asset a rendering job references
// is present on local disk, verified and accounted for before rendering
// starts.
//
// Downloaded bytes are kept in a content-addressed shared cache so that
// concurrent jobs, in this process or others, fetch each object once. Every
// job receives its own directory of hard links (or copies) into the shared
// cache plus a manifest.json that maps asset IDs to absolute local paths.
//
// # Quick Start
//
// Prepare the assets of one job:
//
//	m, err := assetcache.New(jobID, userID, store, signer,
//	    assetcache.WithCacheRoot("/var/cache/assetcache"),
//	    assetcache.WithLogger(logger),
//	)
//	if err != nil {
//	    return err
//	}
//	defer m.Cleanup(ctx)
//
//	manifest, err := m.Prepare(ctx, assetIDs)
//	if err != nil {
//	    return err
//	}
//	render(manifest)
//
// The store resolves asset metadata (see [metadata.Store]) and the signer
// issues time-limited download URLs (see [storage.Signer]).
//
// # Failure Semantics
//
// Prepare is all or nothing. Validation failures are reported as
// [*ValidationError] before any download starts. A failed asset is reported
// as [*AssetError] wrapping one of [ErrPresign], [ErrDownload],
// [ErrIntegrity], [ErrSizeMismatch] or [ErrMaterialize]. No manifest is
// written unless every requested asset is present.
//
// # Shared Cache Eviction
//
// Use [WithJanitor] to run a background [janitor.Janitor] owned by the
// manager. It is stopped by [Manager.Cleanup].
package assetcache
