package backup

import (
	"context"
	"fmt"
	"mime"
	"path"
	"strings"

	"printvault/internal/blob"
	"printvault/pkg/domain"
)

// maxKeyAttempts bounds the rename-on-collision probe. Keys embed freshly
// minted record IDs, so collisions only happen against leftovers from
// interrupted imports; hitting the bound means something else is wrong.
const maxKeyAttempts = 100

// storeMediaFile copies one archive media payload into the blob store under
// the importing record's key. When the preferred key is taken the filename
// gets a numeric suffix: photo.jpg, photo-1.jpg, photo-2.jpg.
func storeMediaFile(ctx context.Context, blobs blob.Store, mf MediaFile, t domain.EntityType, recordID string) (string, error) {
	if blobs == nil {
		return "", fmt.Errorf("no blob store configured")
	}
	stem, ext := splitFilename(mf.Name)
	var lastErr error
	for attempt := 0; attempt < maxKeyAttempts; attempt++ {
		name := mf.Name
		if attempt > 0 {
			name = fmt.Sprintf("%s-%d%s", stem, attempt, ext)
		}
		key := fmt.Sprintf("%s/%s/%s", t, recordID, name)
		if _, err := blobs.Head(ctx, key); err == nil {
			continue
		}
		rc, err := mf.Open()
		if err != nil {
			return "", err
		}
		_, err = blobs.Put(ctx, key, rc, blob.PutOptions{ContentType: mime.TypeByExtension(ext)})
		_ = rc.Close()
		if err == nil {
			return key, nil
		}
		lastErr = err
	}
	return "", fmt.Errorf("no free key after %d attempts: %w", maxKeyAttempts, lastErr)
}

func splitFilename(name string) (stem, ext string) {
	ext = path.Ext(name)
	return strings.TrimSuffix(name, ext), ext
}

// sweepBlobs deletes every stored blob. Replace-mode imports and full wipes
// use it so no orphaned media outlives the records that referenced it.
func sweepBlobs(ctx context.Context, blobs blob.Store) (int, error) {
	if blobs == nil {
		return 0, nil
	}
	infos, err := blobs.List(ctx, "")
	if err != nil {
		return 0, fmt.Errorf("list blobs: %w", err)
	}
	deleted := 0
	for _, info := range infos {
		ok, err := blobs.Delete(ctx, info.Key)
		if err != nil {
			return deleted, fmt.Errorf("delete blob %s: %w", info.Key, err)
		}
		if ok {
			deleted++
		}
	}
	return deleted, nil
}
