package graph

import (
	"time"

	"github.com/custodia-labs/sppurge/internal/core/domain"
)

type driveResource struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type itemResource struct {
	ID                   string    `json:"id"`
	Name                 string    `json:"name"`
	ETag                 string    `json:"eTag"`
	Size                 int64     `json:"size"`
	LastModifiedDateTime time.Time `json:"lastModifiedDateTime"`
	WebURL               string    `json:"webUrl"`

	ParentReference *struct {
		ID   string `json:"id"`
		Path string `json:"path"`
	} `json:"parentReference"`

	File *struct {
		Hashes struct {
			SHA1Hash string `json:"sha1Hash"`
		} `json:"hashes"`
	} `json:"file"`

	Folder *struct {
		ChildCount int `json:"childCount"`
	} `json:"folder"`
}

func (r itemResource) toDomain() domain.DriveItem {
	item := domain.DriveItem{
		ID:           r.ID,
		Name:         r.Name,
		ETag:         r.ETag,
		Size:         r.Size,
		LastModified: r.LastModifiedDateTime,
		WebURL:       r.WebURL,
		IsFolder:     r.Folder != nil,
	}
	if r.ParentReference != nil {
		item.ParentID = r.ParentReference.ID
		item.ParentPath = r.ParentReference.Path
	}
	if r.File != nil {
		item.SHA1 = r.File.Hashes.SHA1Hash
	}
	return item
}
