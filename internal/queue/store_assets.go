package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

const assetColumns = "id, kind, display_name, source, content_key, container_ext, duration_ms, width, height, raw_lang, original_srt, translated_srt, thumbnail_key, waveform_key, created_at, updated_at"

// UpsertAsset inserts an asset keyed by content. When the content key
// already exists the stored asset is returned unchanged and existed is true.
func (s *Store) UpsertAsset(ctx context.Context, asset *Asset) (*Asset, bool, error) {
	ctx = ensureContext(ctx)
	if asset == nil {
		return nil, false, errors.New("asset is nil")
	}
	key := strings.ToLower(strings.TrimSpace(asset.ContentKey))
	if key == "" {
		return nil, false, errors.New("asset content key required")
	}

	if existing, err := s.AssetByContentKey(ctx, key); err != nil {
		return nil, false, err
	} else if existing != nil {
		return existing, true, nil
	}

	if asset.RawLang == "" {
		asset.RawLang = "unknown"
	}
	timestamp := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.execWithRetry(
		ctx,
		`INSERT INTO assets (
            kind, display_name, source, content_key, container_ext, duration_ms,
            width, height, raw_lang, original_srt, translated_srt,
            thumbnail_key, waveform_key, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(content_key) DO NOTHING`,
		string(asset.Kind),
		nullableString(asset.DisplayName),
		string(asset.Source),
		key,
		nullableString(asset.ContainerExt),
		asset.DurationMS,
		asset.Width,
		asset.Height,
		asset.RawLang,
		nullableString(asset.OriginalSRT),
		nullableString(asset.TranslatedSRT),
		nullableString(asset.ThumbnailKey),
		nullableString(asset.WaveformKey),
		timestamp,
		timestamp,
	)
	if err != nil {
		return nil, false, fmt.Errorf("insert asset: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("rows affected: %w", err)
	}

	stored, err := s.AssetByContentKey(ctx, key)
	if err != nil {
		return nil, false, err
	}
	if stored == nil {
		return nil, false, fmt.Errorf("asset %q missing after insert", key)
	}
	// affected == 0 means a concurrent insert won the conflict.
	return stored, affected == 0, nil
}

// GetAsset fetches an asset by identifier. Missing assets return (nil, nil).
func (s *Store) GetAsset(ctx context.Context, id int64) (*Asset, error) {
	ctx = ensureContext(ctx)
	row := s.db.QueryRowContext(ctx, `SELECT `+assetColumns+` FROM assets WHERE id = ?`, id)
	asset, err := scanAsset(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get asset: %w", err)
	}
	return asset, nil
}

// AssetByContentKey fetches an asset by its content key.
func (s *Store) AssetByContentKey(ctx context.Context, contentKey string) (*Asset, error) {
	ctx = ensureContext(ctx)
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+assetColumns+` FROM assets WHERE content_key = ?`,
		strings.ToLower(strings.TrimSpace(contentKey)),
	)
	asset, err := scanAsset(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("asset by content key: %w", err)
	}
	return asset, nil
}

// ListAssets returns every asset, newest first.
func (s *Store) ListAssets(ctx context.Context) ([]*Asset, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx, `SELECT `+assetColumns+` FROM assets ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list assets: %w", err)
	}
	defer rows.Close()

	var assets []*Asset
	for rows.Next() {
		asset, err := scanAsset(rows)
		if err != nil {
			return nil, err
		}
		assets = append(assets, asset)
	}
	return assets, rows.Err()
}

// UpdateAsset persists changes to an existing asset.
func (s *Store) UpdateAsset(ctx context.Context, asset *Asset) error {
	ctx = ensureContext(ctx)
	if asset == nil {
		return errors.New("asset is nil")
	}
	asset.UpdatedAt = time.Now().UTC()
	_, err := s.execWithRetry(
		ctx,
		`UPDATE assets
         SET kind = ?, display_name = ?, source = ?, container_ext = ?,
             duration_ms = ?, width = ?, height = ?, raw_lang = ?,
             original_srt = ?, translated_srt = ?, thumbnail_key = ?,
             waveform_key = ?, updated_at = ?
         WHERE id = ?`,
		string(asset.Kind),
		nullableString(asset.DisplayName),
		string(asset.Source),
		nullableString(asset.ContainerExt),
		asset.DurationMS,
		asset.Width,
		asset.Height,
		asset.RawLang,
		nullableString(asset.OriginalSRT),
		nullableString(asset.TranslatedSRT),
		nullableString(asset.ThumbnailKey),
		nullableString(asset.WaveformKey),
		asset.UpdatedAt.Format(time.RFC3339Nano),
		asset.ID,
	)
	if err != nil {
		return fmt.Errorf("update asset: %w", err)
	}
	return nil
}

// RemoveAsset deletes an asset row. Artifact cleanup is the caller's job.
func (s *Store) RemoveAsset(ctx context.Context, id int64) (bool, error) {
	ctx = ensureContext(ctx)
	res, err := s.execWithRetry(ctx, `DELETE FROM assets WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete asset: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

func scanAsset(scanner interface{ Scan(dest ...any) error }) (*Asset, error) {
	var (
		id            int64
		kindStr       string
		displayName   sql.NullString
		sourceStr     string
		contentKey    string
		containerExt  sql.NullString
		durationMS    sql.NullInt64
		width         sql.NullInt64
		height        sql.NullInt64
		rawLang       sql.NullString
		originalSRT   sql.NullString
		translatedSRT sql.NullString
		thumbnailKey  sql.NullString
		waveformKey   sql.NullString
		createdRaw    sql.NullString
		updatedRaw    sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&kindStr,
		&displayName,
		&sourceStr,
		&contentKey,
		&containerExt,
		&durationMS,
		&width,
		&height,
		&rawLang,
		&originalSRT,
		&translatedSRT,
		&thumbnailKey,
		&waveformKey,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	asset := &Asset{
		ID:            id,
		Kind:          AssetKind(kindStr),
		DisplayName:   displayName.String,
		Source:        Source(sourceStr),
		ContentKey:    contentKey,
		ContainerExt:  containerExt.String,
		DurationMS:    durationMS.Int64,
		Width:         int(width.Int64),
		Height:        int(height.Int64),
		RawLang:       rawLang.String,
		OriginalSRT:   originalSRT.String,
		TranslatedSRT: translatedSRT.String,
		ThumbnailKey:  thumbnailKey.String,
		WaveformKey:   waveformKey.String,
	}
	if asset.RawLang == "" {
		asset.RawLang = "unknown"
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		asset.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		asset.UpdatedAt = updated
	}
	return asset, nil
}
