package structure

// Element tags understood by the page pipelines.
const (
	TagTitle           = "TITLE"
	TagMetaDescription = "META_DESCRIPTION"
	TagMetaWords       = "META_WORDS"
	TagMetaBacklink    = "META_BACKLINK"
	TagH1              = "H1"
	TagH2              = "H2"
	TagP               = "P"
	TagContentMenu     = "CONTENT_MENU"
	TagProgressBar     = "PROGRESS_BAR"
	TagSocial          = "SOCIAL"
	TagAuthor          = "AUTHOR"
	TagHeadContent     = "HEAD_CONTENT"
	TagImg             = "IMG"
	TagImgFirst        = "IMG_FIRST"
	TagImgSecond       = "IMG_SECOND"
	TagImgThird        = "IMG_THIRD"
	TagFigcaption      = "FIGCAPTION"
	TagQuiz            = "QUIZ"
	TagGraph           = "GRAPH"
	TagFAQ             = "FAQ"
	TagTable           = "TABLE"
	TagTableFirst      = "TABLE_FIRST"
	TagTableSecond     = "TABLE_SECOND"
	TagFacts           = "FACTS"
	TagNewsBubble      = "NEWS_BUBBLE"
	TagReferences      = "REFERENCES"
	TagRelatedPages    = "RELATED_PAGES"
	TagUpperRelation   = "UPPER_RELATION"
	TagInnerRelation   = "INNER_RELATION"
	TagLowerRelation   = "LOWER_RELATION"
	TagShareButton     = "SHARE_BUTTON"
	TagCommentForm     = "COMMENT_FORM"
	TagCommentSection  = "COMMENT_SECTION"
	TagFeatures        = "FEATURES"
	TagBenefits        = "BENEFITS"
	TagGrid            = "GRID"

	TagCTA                = "CTA"
	TagCTAHeadingText     = "CTA_HEADING_TEXT"
	TagCTADescriptionText = "CTA_DESCRIPTION_TEXT"
	TagCTAButton          = "CTA_BUTTON"
	TagCTAImg             = "CTA_IMG"
	TagCTAFigcaption      = "CTA_FIGCAPTION"

	TagInnerCTA            = "INNER_CTA"
	TagInnerCTAHeadingText = "INNER_CTA_HEADING_TEXT"
	TagInnerCTAButton      = "INNER_CTA_BUTTON"

	TagContacts           = "CONTACTS"
	TagContactPhoneNumber = "CONTACT_PHONE_NUMBER"
	TagContactEmail       = "CONTACT_EMAIL"
	TagContactAddress     = "CONTACT_ADDRESS"
	TagContactButton      = "CONTACT_BUTTON"
)

// ImageTags lists every element rendered from a generated image.
var ImageTags = []string{TagImg, TagImgFirst, TagImgSecond, TagImgThird}

func IsImage(tag string) bool {
	for _, t := range ImageTags {
		if t == tag {
			return true
		}
	}
	return false
}

// group describes a composite element assembled from sibling placeholders.
type group struct {
	children []string
	required []string
	// minChildren applies when required is empty.
	minChildren int
	// dependsOn names a tag that must be enabled somewhere in the structure.
	dependsOn string
}

var groups = map[string]group{
	TagCTA: {
		children: []string{TagCTAHeadingText, TagCTADescriptionText, TagCTAButton, TagCTAImg, TagCTAFigcaption},
		required: []string{TagCTAHeadingText, TagCTAButton},
	},
	TagInnerCTA: {
		children:  []string{TagInnerCTAHeadingText, TagInnerCTAButton},
		required:  []string{TagInnerCTAButton},
		dependsOn: TagCTAButton,
	},
	TagContacts: {
		children:    []string{TagContactPhoneNumber, TagContactEmail, TagContactAddress, TagContactButton},
		minChildren: 1,
	},
}

// parentOf maps each grouped child tag to its parent tag.
var parentOf = func() map[string]string {
	out := map[string]string{}
	for parent, g := range groups {
		for _, c := range g.children {
			out[c] = parent
		}
	}
	return out
}()
