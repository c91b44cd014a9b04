// Package classifier scores normalized company text for sales relevance with a
// TF-IDF vectorizer feeding a binary logistic regression. A Model is built once,
// either by Train or by loading a persisted artifact, and is read-only afterwards.
package classifier
