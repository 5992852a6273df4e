package db

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/paulmach/orb/geojson"

	"github.com/joeblew999/plat-slackmap/internal/geo"
)

const createCachedFeatures = `
CREATE TABLE IF NOT EXISTS cached_features (
	id         VARCHAR PRIMARY KEY,
	source     VARCHAR NOT NULL,
	type       VARCHAR,
	lon        DOUBLE,
	lat        DOUBLE,
	geometry   VARCHAR NOT NULL,
	properties VARCHAR
)`

func (d *DB) migrate(ctx context.Context) error {
	if _, err := d.sql.ExecContext(ctx, createCachedFeatures); err != nil {
		return fmt.Errorf("failed to create cached_features: %w", err)
	}
	return nil
}

// MirrorFeatures copies cached features of sourceID into cached_features.
// Features already mirrored keep their first row.
func (d *DB) MirrorFeatures(ctx context.Context, sourceID string, features []*geojson.Feature) error {
	if d == nil {
		return ErrUnavailable
	}
	tx, err := d.sql.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin mirror: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO cached_features
		(id, source, type, lon, lat, geometry, properties)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING`)
	if err != nil {
		return fmt.Errorf("failed to prepare mirror: %w", err)
	}
	defer stmt.Close()

	for _, f := range features {
		id := geo.PropertyID(f.Properties)
		if id == "" || f.Geometry == nil {
			continue
		}
		g, err := geojson.NewGeometry(f.Geometry).MarshalJSON()
		if err != nil {
			return fmt.Errorf("failed to encode geometry of %s: %w", id, err)
		}
		props, err := json.Marshal(f.Properties)
		if err != nil {
			return fmt.Errorf("failed to encode properties of %s: %w", id, err)
		}
		c := geo.ClassifyFeature(f)
		var lon, lat any
		if c.OK {
			lon, lat = c.Centroid.Lon(), c.Centroid.Lat()
		}
		if _, err := stmt.ExecContext(ctx, id, sourceID, string(c.Type), lon, lat, string(g), string(props)); err != nil {
			return fmt.Errorf("failed to mirror %s: %w", id, err)
		}
	}
	return tx.Commit()
}
