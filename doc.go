// Package imagecache resolves a logical image Source into a locally cached
// resource and decides whether a placeholder or the image should be shown.
//
// Components:
//   - View: per-instance resolution state machine. Mount, Update and Unmount
//     drive it; it issues commands to a Manager and reacts to its callbacks.
//   - Manager: the cache manager contract (storage, locks, removal, downloads).
//     See package filecache for the on-disk implementation.
//   - Logger / Hooks: optional observability, no-op by default.
//
// Resolution (once the manager is ready):
//
//	non-remote uri      -> adopt source as-is, release lock
//	path being removed  -> wait for OnRemoved, restart
//	entry exists        -> Lock(id, path), adopt Source(path)
//	miss                -> Loading=true, Download(...), wait for callbacks
//
// Every attempt carries a generation. Callbacks from a superseded attempt, or
// arriving after Unmount, are dropped.
//
// Minimal use:
//
//	v := imagecache.New(mgr, imagecache.Props{
//	    Source:  imagecache.Source{URI: "https://example.com/a.png"},
//	    OnLoad:  func(f imagecache.File) { ... },
//	})
//	v.Mount()
//	defer v.Unmount()
//	el := v.Render() // ActivityIndicator{} or Image{...}
package imagecache
